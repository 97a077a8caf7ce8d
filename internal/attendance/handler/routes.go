package handler

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the attendance API, usually under /api/v1/attendance
func Routes(schedules *ScheduleHandler, attendance *AttendanceHandler, statistics *StatisticsHandler) func(chi.Router) {
	return func(r chi.Router) {
		// Schedule routes
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", schedules.List)
			r.Post("/", schedules.Create)
			r.Get("/stats", schedules.Stats)
			r.Get("/can-mutate", schedules.CanMutate)
			r.Get("/{id}", schedules.Get)
			r.Put("/{id}", schedules.Update)
			r.Delete("/{id}", schedules.Delete)
		})

		// Attendance event routes
		r.Get("/events", attendance.List)
		r.Post("/events", attendance.Record)
		r.Post("/checkin", attendance.CheckIn)
		r.Post("/checkout", attendance.CheckOut)

		// Reconciliation routes
		r.Get("/statuses", statistics.Statuses)
		r.Get("/statistics", statistics.Statistics)
		r.Get("/statistics/export", statistics.Export)
		r.Get("/live", statistics.Live)
	}
}
