package outline

import "github.com/conorfennell/knolnote/internal/domain"

// AncestorsOf returns the content of the blocks enclosing blocks[index],
// root first. It scans backwards and takes every block whose level is
// strictly below the last one taken, so skipped indentation levels are
// tolerated.
func AncestorsOf(blocks []domain.Block, index int) []string {
	if index <= 0 || index >= len(blocks) {
		return nil
	}

	var path []string
	level := blocks[index].Level
	for i := index - 1; i >= 0 && level > 0; i-- {
		if blocks[i].Level < level {
			path = append(path, blocks[i].Content)
			level = blocks[i].Level
		}
	}

	// collected parent first
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}
