// Package main is the entry point for Pulse.
//
//	@title						Pulse API
//	@version					1.0
//	@description				Mobile app analytics: event ingestion, aggregated dashboards, exports and LLM cost tracking.
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	ProjectKey
//	@in							header
//	@name						X-API-Key
//	@description				Project ingestion key
//
//	@securityDefinitions.apikey	AdminToken
//	@in							header
//	@name						X-Admin-Token
//	@description				Operator token for costs and the admin API
package main

func main() {
	Execute()
}
