// Package smtpd serves the goSubmit engine over SMTP submission.
//
// Each accepted connection gets a ULID session identifier and an engine
// session. Commands are parsed here and forwarded to the matching Engine
// handler, and the engine's reply is written back verbatim, including the
// 354 DATA prompt and the 235 after a successful AUTH. The transport only
// answers for things the engine does not model: the banner, the EHLO
// extension list, STARTTLS, NOOP, VRFY, QUIT and syntax errors.
//
// AUTH PLAIN and AUTH LOGIN are offered, driven by go-sasl servers. AUTH is
// advertised only over TLS unless Config.AllowInsecureAuth is set.
package smtpd
