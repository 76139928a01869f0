package main

import "github.com/killallgit/annotation-api/cmd"

// @title           Annotation API
// @version         1.0.0
// @description     Media annotation and review platform with background media processing
// @contact.name    API Support
// @contact.url     https://github.com/killallgit/annotation-api
// @license.name    MIT
// @license.url     https://opensource.org/licenses/MIT
// @host            localhost:8080
// @BasePath        /
// @schemes         http https
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Bearer token from POST /api/v1/auth/login
func main() {
	cmd.Execute()
}
