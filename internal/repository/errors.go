// Package repository contains the MySQL data access layer. Sentinel errors
// defined here let handlers distinguish failure cases without inspecting
// driver-specific error strings everywhere.
package repository

import "errors"

// ErrVINExists is returned when an auction insert or import collides with
// an existing VIN. Handlers translate this into an HTTP 409 response.
var ErrVINExists = errors.New("vin already exists")

// ErrEmailExists is returned when a registration collides with an existing
// email address.
var ErrEmailExists = errors.New("email already exists")

// ErrNoChange indicates an UPDATE matched no rows or set fields equal to
// their current values.
var ErrNoChange = errors.New("no change")
