package reactions

import (
	"context"
	"sync"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/database/models"
	"github.com/robalyx/neurobot/internal/gateway"
	"go.uber.org/zap"
)

// editTask updates a notification message to show a new count.
type editTask struct {
	GuildID        snowflake.ID
	Pattern        string
	GroupName      string
	Emoji          string
	MessageID      snowflake.ID
	MessageChannel snowflake.ID
	ChannelID      snowflake.ID
	NotificationID snowflake.ID
	Count          int
}

func (t editTask) key() snowflake.ID {
	return t.NotificationID
}

// EditQueue serializes notification edits. Tasks are applied one per Drain
// call in FIFO order and a notification is queued at most once. The count
// shown is read from the reaction log when the task is applied, so pushes
// that race each other cannot leave a stale count behind.
type EditQueue struct {
	mu        sync.Mutex
	tasks     []editTask
	gateway   gateway.Gateway
	model     *models.NotificationModel
	reactions *models.ReactionModel
	logger    *zap.Logger
}

// NewEditQueue creates an empty queue.
func NewEditQueue(
	gw gateway.Gateway, model *models.NotificationModel, reactions *models.ReactionModel, logger *zap.Logger,
) *EditQueue {
	return &EditQueue{
		gateway:   gw,
		model:     model,
		reactions: reactions,
		logger:    logger.Named("edit_queue"),
	}
}

// Push enqueues a task.
func (q *EditQueue) Push(task editTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.tasks {
		if q.tasks[i].key() == task.key() {
			q.tasks[i] = task
			return
		}
	}
	q.tasks = append(q.tasks, task)
}

// Len returns the number of waiting tasks.
func (q *EditQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *EditQueue) pop() (editTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return editTask{}, false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}

// Drain applies the oldest task. A failed task is dropped.
func (q *EditQueue) Drain(ctx context.Context) {
	task, ok := q.pop()
	if !ok {
		return
	}

	count, err := q.reactions.NetCount(ctx, uint64(task.GuildID), uint64(task.MessageID), task.Emoji)
	if err != nil {
		q.logger.Warn("Failed to recount reactions, using queued count", zap.Error(err))
	} else {
		task.Count = count
	}

	logger := q.logger.With(
		zap.Uint64("guildID", uint64(task.GuildID)),
		zap.Uint64("notificationID", uint64(task.NotificationID)),
		zap.Int("count", task.Count))

	embed := notificationEmbed(task.GroupName, task.Emoji, task.Count, task.GuildID, task.MessageChannel, task.MessageID)
	update := discord.NewMessageUpdateBuilder().SetEmbeds(embed).Build()

	if _, err := q.gateway.EditMessage(ctx, task.ChannelID, task.NotificationID, update); err != nil {
		logger.Warn("Failed to edit notification, dropping task", zap.Error(err))
		return
	}

	if err := q.model.UpdateCount(ctx, uint64(task.GuildID), task.Pattern, uint64(task.MessageID), task.Count); err != nil {
		logger.Error("Failed to store notification count", zap.Error(err))
	}
}
