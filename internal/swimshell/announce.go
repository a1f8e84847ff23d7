package swimshell

// announce delivers change to the embedder's OnChange callback, but
// only once per distinct (node, status-kind) pair: repeating the same
// kind is a no-op, any transition to a new kind (including the very
// first announcement of a node) is delivered.
//
// Engine directives can report the same status repeatedly (a suspect
// re-confirmed by a later gossip message, for instance); without this
// de-duplication the embedder would see a stream of redundant
// notifications for a member that never actually changed status.
func (s *Shell) announce(change MemberStatusChange) {
	key := addressKey(change.Member.Node)
	kind := change.Member.Status.Kind
	if last, ok := s.lastReported[key]; ok && last == kind {
		return
	}
	s.lastReported[key] = kind
	if s.onChange != nil {
		s.onChange(change)
	}
}
