package smtpd

import (
	"errors"

	goSubmit "github.com/MrEthical07/goSubmit"
	"github.com/emersion/go-sasl"
)

const (
	mechPlain = sasl.Plain
	mechLogin = "LOGIN"
)

// mechanisms is the order advertised in the EHLO AUTH line.
var mechanisms = []string{mechPlain, mechLogin}

var errLoginSequence = errors.New("unexpected LOGIN response")

type authenticateFunc func(username, password string) error

// newSASLServer returns the server side of mech, or nil when the mechanism
// is not offered.
func newSASLServer(mech string, fn authenticateFunc) sasl.Server {
	switch mech {
	case mechPlain:
		return sasl.NewPlainServer(func(identity, username, password string) error {
			// Acting on behalf of another principal is not supported.
			if identity != "" && identity != username {
				return &goSubmit.ReplyError{Reply: malformedCredentials, Reason: "authorization identity differs"}
			}
			return fn(username, password)
		})
	case mechLogin:
		return newLoginServer(fn)
	default:
		return nil
	}
}

// loginServer implements the server side of AUTH LOGIN, which go-sasl only
// ships as a client.
type loginServer struct {
	authenticate authenticateFunc
	username     string
	step         int
}

func newLoginServer(fn authenticateFunc) sasl.Server {
	return &loginServer{authenticate: fn}
}

func (s *loginServer) Next(response []byte) (challenge []byte, done bool, err error) {
	switch s.step {
	case 0:
		if response == nil {
			s.step = 1
			return []byte("Username:"), false, nil
		}
		// Initial response carries the username.
		s.username = string(response)
		s.step = 2
		return []byte("Password:"), false, nil
	case 1:
		s.username = string(response)
		s.step = 2
		return []byte("Password:"), false, nil
	case 2:
		s.step = 3
		return nil, true, s.authenticate(s.username, string(response))
	default:
		return nil, false, errLoginSequence
	}
}
