// Package docs provides generated OpenAPI documentation.
//
// pyqvault API
//
//	@title			pyqvault API
//	@version		1.0
//	@description	Exam paper extraction API for managing books, pages, and question extraction.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/pyqvault/pyqvault
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/pyqvault/serve.go -o ./swagger --parseDependency --parseInternal
