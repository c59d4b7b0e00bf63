// Package httpapp provides the HTTP server for Topicboard.
//
//	@title						Topicboard API
//	@version					1.0
//	@description				Topic-tagged posts with expiry, likes, dislikes and comments.
//	@description
//	@description				## Authentication
//	@description
//	@description				Register or log in to receive a `token` cookie. Creating posts and
//	@description				acting on them requires the cookie; reads are public.
//	@description				```bash
//	@description				curl -c jar -X POST /api/auth/login -d '{"email":"a@example.com","password":"pw"}'
//	@description				curl -b jar -X PUT /api/posts/ID/action -d '{"action":"like"}'
//	@description				```
//	@description
//	@description				Tokens expire after one hour.
//
//	@contact.name				Topicboard
//	@license.name				MIT
//
//	@host						localhost:5000
//	@BasePath					/
//
//	@securityDefinitions.apikey	CookieAuth
//	@in							cookie
//	@name						token
//	@description				Token set by /api/auth/register and /api/auth/login
//
//	@tag.name					Auth
//	@tag.description			Registration, login and logout.
//
//	@tag.name					Posts
//	@tag.description			Create, list and interact with topic posts.
//
//	@tag.name					Ops
//	@tag.description			Health and metrics.
package httpapp
