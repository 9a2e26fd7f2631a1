// Package tui provides the live terminal view of a running casegen task.
//
// The view is read-only. It follows one task on a pipeline event channel
// and shows:
//   - each specialist stage with its status and run count
//   - the current iteration, review score and token total
//   - the last supervisor decision
//   - a short activity log
//
// Usage:
//
//	emitter := pipeline.NewEventEmitter(256)
//	model := tui.NewProgressModel(taskID, requirement, emitter.Events())
//	go runTask(emitter)
//	if _, err := tui.NewProgressProgram(model).Run(); err != nil { ... }
//
// The program quits by itself when the task is done. Users can quit early
// with 'q' or Ctrl+C; Cancelled then reports true.
package tui
