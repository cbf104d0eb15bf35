// Package docs contains the OpenAPI documentation for Stockpile
//
//	@title			Stockpile Chunked Upload API
//	@version		1.0
//	@description	Resumable chunked uploads: open a session, send numbered chunks in any order, then finalize to assemble the file.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//	@schemes	http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and JWT token.
//
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
//	@description				API key minted with `stockpile keygen`
//
//	@tag.name			Uploads
//	@tag.description	Chunked upload sessions
//
//	@tag.name			Files
//	@tag.description	Assembled artifacts
//
//	@tag.name			Authentication
//	@tag.description	Exchange an API key for a bearer token
package docs
