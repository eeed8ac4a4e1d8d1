// Package httpapp provides the HTTP server for inkpost.
//
//	@title						inkpost API
//	@version					1.0
//	@description				A small blogging platform: accounts, cookie sessions, and posts.
//	@description
//	@description				## Authentication Flow
//	@description
//	@description				Creating and editing posts requires a session. Browsers get one as an
//	@description				HttpOnly cookie from the login call; other clients may send the same token
//	@description				as a bearer header.
//	@description
//	@description				```bash
//	@description				curl -X POST /api/register -d '{"username":"jane_writer","email":"jane@example.com","password":"..."}'
//	@description				curl -c jar -X POST /api/login -d '{"username":"jane_writer","password":"..."}'
//	@description				curl -b jar -X POST /api/posts -d '{"title":"...","summary":"...","content":"...","category":"Python"}'
//	@description				```
//	@description
//	@description				Every route is also served without the /api prefix.
//
//	@contact.name				inkpost
//	@license.name				MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	CookieAuth
//	@in							cookie
//	@name						token
//	@description				Session token set by /login
//
//	@tag.name					Auth
//	@tag.description			Register, log in, log out, and inspect the current session.
//
//	@tag.name					Posts
//	@tag.description			Browse, create, and edit posts. Only the author may edit a post.
//
//	@tag.name					Meta
//	@tag.description			Health and client configuration.
package httpapp
