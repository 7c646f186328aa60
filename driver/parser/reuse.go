package parser

// reuseCursor finds subtrees of an edited old tree at positions of the new input.
// Positions of the old tree are already translated by the edits.
type reuseCursor struct {
	root *subtree
}

func newReuseCursor(old *Tree) *reuseCursor {
	if old == nil || old.root == nil {
		return nil
	}
	return &reuseCursor{
		root: old.root,
	}
}

// candidates returns the subtrees starting at offset, outermost first. The last one
// is a leaf unless the search stops at an empty subtree or an error. The search
// doesn't enter errors, since their contents come from recoveries a new parse may
// not repeat.
func (c *reuseCursor) candidates(offset int) []*subtree {
	var found []*subtree
	if c.root.length.Bytes == 0 {
		return nil
	}
	if offset == 0 {
		found = append(found, c.root)
	}
	s := c.root
	start := 0
	for len(s.children) > 0 && !s.isError {
		var next *subtree
		pos := start
		for _, child := range s.children {
			end := pos + child.length.Bytes
			if child.length.Bytes > 0 && pos <= offset && offset < end {
				next = child
				break
			}
			pos = end
		}
		if next == nil {
			break
		}
		if pos == offset {
			found = append(found, next)
		}
		s = next
		start = pos
	}
	return found
}

// reusableAsNode reports whether a subtree can be pushed as it is.
func reusableAsNode(s *subtree) bool {
	return !s.stale &&
		!s.fragile &&
		s.errorCount == 0 &&
		!s.extra &&
		!s.external &&
		s.length.Bytes > 0
}

// reusableAsToken reports whether a leaf can stand for a token read in a lex mode.
func reusableAsToken(s *subtree, lexMode int) bool {
	return len(s.children) == 0 &&
		!s.stale &&
		s.errorCount == 0 &&
		!s.external &&
		s.length.Bytes > 0 &&
		s.lexMode == lexMode
}
