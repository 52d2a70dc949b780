// Package domain contains the core entities of the image generation
// workflow: reusable job configurations, job executions (one pipeline run),
// and the generated images they produce. Entities validate themselves and
// own their status transition rules; persistence and orchestration live in
// other packages.
package domain
