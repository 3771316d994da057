package room

import (
	"time"

	"go.uber.org/zap"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

// reminderKey identifies one running ack reminder. A new unblock for
// the same key replaces the running reminder.
type reminderKey struct {
	Agent  string
	TaskID string
}

// reminder is one pending acknowledgement nag. rowAgent is the
// blockedAgent on the stored row, which can differ from the notify
// target when the unblock carried an override.
type reminder struct {
	key      reminderKey
	rowAgent string
	stop     chan struct{}
}

// startReminder begins nagging notifyAgent to acknowledge the resolved
// blocker. The first notification fires immediately; a goroutine then
// posts a tick back to the mailbox every ping interval until the ack
// arrives or the row disappears.
func (r *Room) startReminder(notifyAgent string, blocker *models.Blocker) {
	key := reminderKey{Agent: notifyAgent, TaskID: blocker.TaskID}
	r.cancelReminder(key)

	rem := &reminder{key: key, rowAgent: blocker.BlockedAgent, stop: make(chan struct{})}
	r.reminders[key] = rem
	r.notifyUnblocked(blocker, notifyAgent)

	interval := r.cfg.UnblockPingInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !r.post(reminderFireMsg{key: key}) {
					return
				}
			case <-rem.stop:
				return
			}
		}
	}()
}

// cancelReminder stops the reminder goroutine for key, if any.
func (r *Room) cancelReminder(key reminderKey) bool {
	rem, ok := r.reminders[key]
	if !ok {
		return false
	}
	close(rem.stop)
	delete(r.reminders, key)
	return true
}

// onReminderFire re-reads the blocker row on every tick so an ack or
// resolution that happened elsewhere cancels the nag.
func (r *Room) onReminderFire(key reminderKey) {
	rem, ok := r.reminders[key]
	if !ok {
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	blockers, err := r.svc.Store().ListBlockedTasks(ctx, false)
	if err != nil {
		// Transient read failure; keep the reminder for the next tick.
		r.log.Warn("reminder tick read failed", zap.Error(err))
		return
	}

	var row *models.Blocker
	for _, b := range blockers {
		if b.TaskID == key.TaskID && b.BlockedAgent == rem.rowAgent && b.Resolved() {
			row = b
			break
		}
	}
	if row == nil {
		r.cancelReminder(key)
		return
	}
	r.notifyUnblocked(row, key.Agent)
}

// notifyUnblocked stamps lastNotified and delivers the reminder frame
// to the target agent, broadcasting when that agent is offline.
func (r *Room) notifyUnblocked(blocker *models.Blocker, agent string) {
	ctx, cancel := opCtx()
	defer cancel()
	if err := r.svc.Store().TouchBlockLastNotified(ctx, blocker.ID); err != nil {
		r.log.Warn("failed to stamp reminder notification",
			zap.String("block_id", blocker.ID),
			zap.Error(err))
	}

	f, err := frame.New(frame.TypeAgentsUnblockedReminder, map[string]any{
		"agentName": agent,
		"taskId":    blocker.TaskID,
		"blocker":   blocker,
		"message": "Task " + blocker.TaskID +
			" has been unblocked. Acknowledge with agents.ackUnblock to stop reminders.",
	})
	if err != nil {
		return
	}
	r.sendToAgent(agent, f)
}
