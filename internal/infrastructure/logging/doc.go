// Package logging configures log/slog for the presence service.
//
// Records are JSON by default (format: text for a terminal) and carry the
// service name and build version. The logging section of config.yaml:
//
//	logging:
//	  level: info     # debug | info | warn | error
//	  format: json    # json | text
//	  output: stdout  # stdout | stderr | discard
//
// Router and broker passwords must never be passed as log arguments.
package logging
