package board

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/corkboardapp/corkboard/internal/boardstore"
	"github.com/corkboardapp/corkboard/internal/notify"
)

// StartScheduler arms the alarm for the first wake. The alarm is
// reprogrammed after every firing; a wake that arrives late catches up by
// comparing now against the stored due times.
func (a *Actor) StartScheduler() {
	a.alarm.SetAt(a.nextWake(time.Now()))
}

// nextWake returns the earlier of the briefing due time and the next
// task-polling tick.
func (a *Actor) nextWake(now time.Time) time.Time {
	next := now.Add(a.pollInterval)
	if a.briefingSched != nil && a.briefingNext.Before(next) {
		next = a.briefingNext
	}
	return next
}

// onAlarm is the single timer callback shared by both scheduler timelines.
func (a *Actor) onAlarm() {
	select {
	case <-a.ctx.Done():
		return
	default:
	}

	now := time.Now()

	if a.briefingSched != nil && !now.Before(a.briefingNext) {
		a.runBriefing(now)
		// Reprogram forward from now: one catch-up execution even if
		// several periods were slept through.
		a.briefingNext = a.briefingSched.Next(now)
	}

	a.RunSchedulerPass(a.ctx)

	a.alarm.SetAt(a.nextWake(time.Now()))
}

// RunSchedulerPass executes every enabled task whose next run is due and
// reschedules each one. Also reachable through POST /api/scheduler/tick.
func (a *Actor) RunSchedulerPass(ctx context.Context) {
	now := time.Now()
	due, err := a.store.ListDueTasks(now)
	if err != nil {
		log.Printf("board %s: listing due tasks: %v", a.boardID, err)
		return
	}

	for _, task := range due {
		a.runTask(ctx, task)
	}
}

// EnqueueTask schedules an independent execution of a task, used by the
// workflow matcher and POST /api/run. It never blocks the caller.
func (a *Actor) EnqueueTask(taskID string) {
	go func() {
		task, err := a.store.GetScheduledTask(taskID)
		if err != nil {
			log.Printf("board %s: task %s not found: %v", a.boardID, taskID, err)
			return
		}
		a.runTask(a.ctx, task)
	}()
}

// RunPrompt fires a one-off generation for a prompt outside any
// schedule, used by POST /api/run. The synthetic task carries the
// prompt id so the audit trail stays attributable.
func (a *Actor) RunPrompt(promptID string) {
	go a.runTask(a.ctx, &boardstore.ScheduledTask{ID: promptID, PromptID: promptID})
}

// runTask executes one task through the fallback chain and records the
// outcome. Success pushes next_run forward by the task's cron spec (or
// the fixed success cycle); failure pushes it forward by the shorter
// retry interval. Tasks stay perpetually rescheduled until disabled.
func (a *Actor) runTask(ctx context.Context, task *boardstore.ScheduledTask) {
	if a.gen == nil {
		log.Printf("board %s: no generator configured, skipping task %s", a.boardID, task.ID)
		return
	}

	payload := task.Payload
	if payload == "" {
		body, err := a.store.GetPromptBody(task.PromptID)
		if err != nil {
			log.Printf("board %s: task %s: loading prompt %s: %v", a.boardID, task.ID, task.PromptID, err)
			return
		}
		payload = body
	}

	start := time.Now()
	result, err := a.gen.Execute(ctx, payload)
	duration := time.Since(start)
	now := time.Now()

	if err != nil {
		log.Printf("board %s: task %s failed after %v: %v", a.boardID, task.ID, duration.Round(time.Millisecond), err)

		if serr := a.store.SetPromptStatus(task.PromptID, boardstore.StatusError); serr != nil {
			log.Printf("board %s: marking prompt %s: %v", a.boardID, task.PromptID, serr)
		}
		a.appendLog(task.ID, err.Error(), now, duration, boardstore.StatusError)
		a.reschedule(task, now, now.Add(a.retryDelay))
		a.sendNotification(ctx, notify.Notification{
			Title:   "Task failed",
			Message: err.Error(),
			Type:    notify.NotifyError,
			TaskID:  task.ID,
			BoardID: a.boardID,
		})
		return
	}

	if serr := a.store.SavePromptOutput(task.PromptID, result.Output, result.ModelUsed); serr != nil {
		log.Printf("board %s: saving output for prompt %s: %v", a.boardID, task.PromptID, serr)
	}
	a.appendLog(task.ID, result.Output, now, duration, boardstore.StatusSuccess)

	// Recompute forward from now, never from the missed due time.
	next := now.Add(a.successCycle)
	if task.CronSpec != "" {
		if sched, perr := a.cronParser.Parse(task.CronSpec); perr == nil {
			next = sched.Next(now)
		} else {
			log.Printf("board %s: task %s has invalid cron %q: %v", a.boardID, task.ID, task.CronSpec, perr)
		}
	}
	a.reschedule(task, now, next)

	a.sendNotification(ctx, notify.Notification{
		Title:   "Task complete",
		Message: fmt.Sprintf("generated with %s in %v", result.ModelUsed, duration.Round(time.Millisecond)),
		Type:    notify.NotifySuccess,
		TaskID:  task.ID,
		BoardID: a.boardID,
	})
}

func (a *Actor) appendLog(taskID, output string, at time.Time, d time.Duration, status string) {
	err := a.store.AppendTaskLog(&boardstore.TaskLogEntry{
		TaskID:     taskID,
		Output:     output,
		ExecutedAt: at,
		DurationMs: d.Milliseconds(),
		Status:     status,
	})
	if err != nil {
		log.Printf("board %s: appending task log: %v", a.boardID, err)
	}
}

func (a *Actor) reschedule(task *boardstore.ScheduledTask, lastRun, nextRun time.Time) {
	if err := a.store.UpdateTaskRun(task.ID, lastRun, nextRun); err != nil {
		log.Printf("board %s: rescheduling task %s: %v", a.boardID, task.ID, err)
	}
}

// sendNotification throttles through the leaky bucket before any
// outbound send so notification traffic stays under the external limit.
func (a *Actor) sendNotification(ctx context.Context, n notify.Notification) {
	if a.limiter != nil {
		if err := a.limiter.Throttle(ctx); err != nil {
			return
		}
	}

	a.mu.Lock()
	notifier := a.notifier
	a.mu.Unlock()

	if err := notifier.Send(n); err != nil {
		log.Printf("board %s: notification failed: %v", a.boardID, err)
	}
}

// SetNotifier swaps the notifier, used on config hot reload.
func (a *Actor) SetNotifier(n notify.Notifier) {
	a.mu.Lock()
	a.notifier = n
	a.mu.Unlock()
}

// runBriefing writes the recurring summary into the audit trail and
// notifies observers. It is the briefing timeline of the alarm loop.
func (a *Actor) runBriefing(now time.Time) {
	lists, cards, err := a.store.Snapshot()
	if err != nil {
		log.Printf("board %s: briefing snapshot failed: %v", a.boardID, err)
		return
	}

	summary := fmt.Sprintf("briefing: %d lists, %d cards", len(lists), len(cards))
	a.appendLog("briefing", summary, now, 0, boardstore.StatusSuccess)
	log.Printf("board %s: %s", a.boardID, summary)

	a.sendNotification(a.ctx, notify.Notification{
		Title:   "Daily briefing",
		Message: summary,
		Type:    notify.NotifyInfo,
		BoardID: a.boardID,
	})
}
