package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           modeldash API
// @version         1.0
// @description     Operator dashboard for a local model daemon: installed and
// @description     running collections, delete/pull/create and live events.
//
// @contact.name   modeldash maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
