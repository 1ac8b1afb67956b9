package posts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"minilink/internal/storage"
)

// legacyPost accepts both object shapes the older clients wrote.
type legacyPost struct {
	ID       string `json:"id"`
	MongoID  string `json:"_id"`
	Content  string `json:"content"`
	AuthorID string `json:"authorId"`
	Author   *struct {
		ID      string `json:"id"`
		MongoID string `json:"_id"`
		Name    string `json:"name"`
	} `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

func (l legacyPost) ref() Ref {
	r := Ref{ID: l.ID, Content: l.Content, AuthorID: l.AuthorID, CreatedAt: l.CreatedAt}
	if r.ID == "" {
		r.ID = l.MongoID
	}
	if l.Author != nil {
		r.AuthorName = l.Author.Name
		if r.AuthorID == "" {
			r.AuthorID = l.Author.ID
		}
		if r.AuthorID == "" {
			r.AuthorID = l.Author.MongoID
		}
	}
	return r
}

var legacyKey = func(name string) storage.Key[[]json.RawMessage] {
	return storage.NewKey[[]json.RawMessage](name, nil)
}

// migrate folds the separate mirror and feed cache of older clients into the
// collection and deletes them. Unreadable legacy values are dropped.
func (c *Collection) migrate(ctx context.Context) error {
	mirror, mirrorFound, err := c.readLegacy(ctx, storage.KeyLegacyMyPosts)
	if err != nil {
		return err
	}
	feed, feedFound, err := c.readLegacy(ctx, storage.KeyLegacyFeedCache)
	if err != nil {
		return err
	}
	if !mirrorFound && !feedFound {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	refs, err := c.load(ctx)
	if err != nil {
		return err
	}

	for _, r := range feed {
		if r.ID != "" && indexOf(refs, r.ID) < 0 {
			refs = append(refs, r)
		}
	}
	// The mirror was written newest first; walk it backwards so prepending
	// keeps that order and assigns increasing sequence numbers.
	for i := len(mirror) - 1; i >= 0; i-- {
		r := mirror[i]
		if j := indexOf(refs, r.ID); r.ID != "" && j >= 0 {
			refs[j].Mine = true
			refs[j].Seq = nextSeq(refs)
			continue
		}
		if r.ID == "" {
			r.ID = newLocalID()
		}
		r.Mine = true
		r.Seq = nextSeq(refs)
		refs = append([]Ref{r}, refs...)
	}

	if err := refsKey.Save(ctx, c.store, refs); err != nil {
		return fmt.Errorf("migrate local posts: %w", err)
	}
	for _, name := range []string{storage.KeyLegacyMyPosts, storage.KeyLegacyFeedCache} {
		if err := legacyKey(name).Clear(ctx, c.store); err != nil {
			return fmt.Errorf("migrate local posts: %w", err)
		}
	}

	c.logger.InfoContext(ctx, "migrated legacy post lists",
		slog.Int("mine", len(mirror)),
		slog.Int("cached", len(feed)),
	)
	return nil
}

func (c *Collection) readLegacy(ctx context.Context, name string) ([]Ref, bool, error) {
	key := legacyKey(name)
	found, err := key.Exists(ctx, c.store)
	if err != nil || !found {
		return nil, false, err
	}

	items, err := key.Load(ctx, c.store)
	if err != nil {
		c.logger.WarnContext(ctx, "dropping unreadable legacy list",
			slog.String("key", name),
			slog.String("error", err.Error()),
		)
		return nil, true, nil
	}

	refs := make([]Ref, 0, len(items))
	for _, raw := range items {
		var content string
		if err := json.Unmarshal(raw, &content); err == nil {
			refs = append(refs, Ref{Content: content})
			continue
		}
		var lp legacyPost
		if err := json.Unmarshal(raw, &lp); err != nil {
			continue
		}
		refs = append(refs, lp.ref())
	}
	return refs, true, nil
}
