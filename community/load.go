package community

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/poiesic/searchgate/core"
)

// Load reads a JSON document shaped like core.CommunityResults and adds its
// items to the index.
func (i *Index) Load(ctx context.Context, r io.Reader) error {
	var content core.CommunityResults
	if err := json.NewDecoder(r).Decode(&content); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}
	return i.Add(ctx, content.Posts, content.Links, content.Comments)
}

// LoadFile is Load for a file on disk.
func (i *Index) LoadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return i.Load(ctx, f)
}
