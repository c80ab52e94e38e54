package room

// Ticking reports whether this process runs the tick task of code.
func (s *Service) Ticking(code string) bool {
	return s.ticking(code)
}
