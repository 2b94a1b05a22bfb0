package recovery

import "fmt"

// Viewport is the drawing surface size in pixels
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Environment describes the host a failure happened on
type Environment struct {
	UserAgent string   `json:"user_agent"`
	Viewport  Viewport `json:"viewport"`
}

// Device renders the viewport as "WxH"
func (e Environment) Device() string {
	return fmt.Sprintf("%dx%d", e.Viewport.Width, e.Viewport.Height)
}

// EnvironmentProvider supplies the environment recorded with each error log entry.
// The presentation adapter registers one that reports the live viewport.
type EnvironmentProvider interface {
	Environment() Environment
}

// StaticEnvironment is an EnvironmentProvider with fixed values
type StaticEnvironment Environment

// Environment implements EnvironmentProvider
func (s StaticEnvironment) Environment() Environment {
	return Environment(s)
}
