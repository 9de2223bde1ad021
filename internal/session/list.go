package session

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
)

func listSessionFiles(root string) ([]string, error) {
	dir := filepath.Join(root, "sessions")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.KindIO, err, "list sessions dir")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func sortByStartedAtDesc(progresses []Progress) {
	sort.Slice(progresses, func(i, j int) bool {
		return progresses[i].StartedAt.After(progresses[j].StartedAt)
	})
}
