package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/task"
)

// BulkCollectPayload lists the owners whose recent posts to collect.
type BulkCollectPayload struct {
	OwnerIDs []int64 `json:"owner_ids" validate:"required,min=1,max=100,dive,required"`

	// PostsPerOwner overrides the configured number of recent posts when
	// positive.
	PostsPerOwner int `json:"posts_per_owner,omitempty" validate:"gte=0,lte=100"`
}

// ScheduledPost is a post for which a fetch_comments task was submitted.
type ScheduledPost struct {
	OwnerID int64     `json:"owner_id"`
	PostID  int64     `json:"post_id"`
	TaskID  uuid.UUID `json:"task_id"`
}

// UnscheduledPost is a post whose fetch_comments task could not be submitted.
type UnscheduledPost struct {
	OwnerID int64  `json:"owner_id"`
	PostID  int64  `json:"post_id"`
	Error   string `json:"error"`
}

// BulkCollectProgress is saved after every post so a retry neither
// schedules a post twice nor counts it twice. OwnerPosts lists the posts of
// the owner at NextOwner that were already handled.
type BulkCollectProgress struct {
	NextOwner   int               `json:"next_owner"`
	OwnerPosts  []int64           `json:"owner_posts,omitempty"`
	Scheduled   []ScheduledPost   `json:"scheduled"`
	Unscheduled []UnscheduledPost `json:"unscheduled"`
	EmptyPosts  int               `json:"empty_posts"`
}

func (p *BulkCollectProgress) handled(postID int64) bool {
	for _, id := range p.OwnerPosts {
		if id == postID {
			return true
		}
	}
	return false
}

// BulkCollectResult is stored on the completed task.
type BulkCollectResult struct {
	Scheduled   []ScheduledPost   `json:"scheduled"`
	Unscheduled []UnscheduledPost `json:"unscheduled"`
	EmptyPosts  int               `json:"empty_posts"`
}

// BulkCollectHandler lists recent posts of several owners and submits a
// fetch_comments task for each post that has comments.
type BulkCollectHandler struct {
	source        Source
	submitter     Submitter
	postsPerOwner int
}

// NewBulkCollectHandler creates the bulk_collect handler.
func NewBulkCollectHandler(d Deps) *BulkCollectHandler {
	return &BulkCollectHandler{
		source:        d.Source,
		submitter:     d.Submitter,
		postsPerOwner: d.Config.PostsPerOwner,
	}
}

var (
	_ task.Handler          = (*BulkCollectHandler)(nil)
	_ task.PayloadValidator = (*BulkCollectHandler)(nil)
)

// ValidatePayload rejects payloads without owners.
func (h *BulkCollectHandler) ValidatePayload(payload json.RawMessage) error {
	var p BulkCollectPayload
	return decodePayload(payload, &p)
}

// Handle schedules child tasks owner by owner, checkpointing after each post.
// A full queue does not fail the task; the affected posts are reported as
// unscheduled.
func (h *BulkCollectHandler) Handle(ctx context.Context, job *task.Job) (json.RawMessage, error) {
	var p BulkCollectPayload
	if err := decodePayload(job.Payload(), &p); err != nil {
		return nil, err
	}

	count := h.postsPerOwner
	if p.PostsPerOwner > 0 {
		count = p.PostsPerOwner
	}

	progress := BulkCollectProgress{
		Scheduled:   []ScheduledPost{},
		Unscheduled: []UnscheduledPost{},
	}
	if _, err := job.DecodeProgress(&progress); err != nil {
		return nil, err
	}

	log := job.Logger()
	for progress.NextOwner < len(p.OwnerIDs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ownerID := p.OwnerIDs[progress.NextOwner]
		posts, err := h.source.FetchPosts(ctx, ownerID, count)
		if err != nil {
			return nil, fmt.Errorf("list posts of owner %d: %w", ownerID, err)
		}

		for _, post := range posts {
			if progress.handled(post.ID) {
				continue
			}

			submitted := false
			if post.Comments.Count == 0 {
				progress.EmptyPosts++
			} else {
				var err error
				if submitted, err = h.schedule(ctx, ownerID, post.ID, &progress); err != nil {
					return nil, err
				}
			}
			progress.OwnerPosts = append(progress.OwnerPosts, post.ID)

			// A submitted child must be recorded even if ctx ends now.
			cpCtx := ctx
			if submitted {
				cpCtx = context.WithoutCancel(ctx)
			}
			if err := job.Checkpoint(cpCtx, progress); err != nil {
				return nil, err
			}
		}

		progress.NextOwner++
		progress.OwnerPosts = nil
		if err := job.Checkpoint(ctx, progress); err != nil {
			return nil, err
		}
		log.Debug("owner scheduled", "owner_id", ownerID, "posts", len(posts))
	}

	log.Info("bulk collection scheduled",
		"owners", len(p.OwnerIDs),
		"scheduled", len(progress.Scheduled),
		"unscheduled", len(progress.Unscheduled),
		"empty_posts", progress.EmptyPosts)
	return marshalResult(BulkCollectResult{
		Scheduled:   progress.Scheduled,
		Unscheduled: progress.Unscheduled,
		EmptyPosts:  progress.EmptyPosts,
	})
}

// schedule submits one child task and reports whether it did. Cancellation
// and a closing queue abort the handler; other submission failures are
// recorded on the post.
func (h *BulkCollectHandler) schedule(ctx context.Context, ownerID, postID int64, progress *BulkCollectProgress) (bool, error) {
	for _, s := range progress.Scheduled {
		if s.OwnerID == ownerID && s.PostID == postID {
			return false, nil
		}
	}

	payload, err := json.Marshal(FetchCommentsPayload{OwnerID: ownerID, PostID: postID})
	if err != nil {
		return false, fmt.Errorf("encode child payload: %w", err)
	}

	child, err := h.submitter.Submit(ctx, domain.TaskTypeFetchComments, payload)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if errors.Is(err, domain.ErrQueueClosed) {
			return false, err
		}
		progress.Unscheduled = append(progress.Unscheduled, UnscheduledPost{
			OwnerID: ownerID,
			PostID:  postID,
			Error:   err.Error(),
		})
		return false, nil
	}

	progress.Scheduled = append(progress.Scheduled, ScheduledPost{
		OwnerID: ownerID,
		PostID:  postID,
		TaskID:  child.ID,
	})
	return true, nil
}
