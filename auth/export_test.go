package auth

func WithPasswordCheck(fn func(password, hash string) bool) ServiceOption {
	return func(s *Service) {
		s.checkPassword = fn
	}
}

var DummyPasswordHash = dummyPasswordHash
