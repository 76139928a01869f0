package media

import (
	"fmt"
	"strconv"
)

func parseFormUint(raw string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return uint(v), nil
}
