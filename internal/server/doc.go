// Package server exposes the task registry and the local storage handoff over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] and [Recover] are the stock middleware.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so handlers read
// path wildcards through [http.Request.PathValue].
//
// # Task API
//
// [TaskHandler] serves:
//
//	GET    /tasks              list tasks in creation order
//	GET    /tasks/{id}         one task
//	POST   /tasks/{id}/pause   pause a running task, aborting its in-flight request
//	POST   /tasks/{id}/resume  resume a paused task
//	POST   /tasks/{id}/cancel  cancel a running or paused task
//	DELETE /tasks/{id}         drop a task from the list
//	POST   /tasks/clear        drop completed tasks
//
// Unknown ids answer 404 and rejected transitions 409.
//
// # Event Stream
//
// [EventsHandler] serves GET /tasks/events as server-sent events. Each event is named "task"
// and carries the JSON snapshot of one task.
//
// # Local Storage Handoff
//
// [InjectionHandler] serves GET /partitions/{partition}/local-storage. Local storage staged by a
// session restore is returned once and then evicted.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
