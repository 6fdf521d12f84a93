// Package services implements the driving port interfaces.
// Services contain the core client logic (redirect chasing, error
// classification, change-feed paging) and orchestrate calls to driven ports.
//
// Services are pure Go with no CGO or external dependencies.
package services
