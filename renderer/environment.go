package renderer

import (
	"context"

	"scene-studio/environment"
	"scene-studio/scene"
)

// LoadEnvironment installs the HDRI at url as illumination. On failure the
// previous environment stays and an *environment.LoadError is returned; the
// procedural sky is only used by Init.
func (s *Studio) LoadEnvironment(ctx context.Context, url string) (*scene.Texture, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	tex, err := s.env.LoadEnvironmentFromURL(ctx, url)
	s.metrics.RecordEnvironmentLoad("hdri", err)
	return tex, err
}

// LoadBackgroundFromFile installs a user image as background and/or
// illumination.
func (s *Studio) LoadBackgroundFromFile(ctx context.Context, name string, data []byte, opts environment.BackgroundOptions) (*scene.Texture, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	tex, err := s.env.LoadBackgroundFromFile(ctx, name, data, opts)
	s.metrics.RecordEnvironmentLoad("background", err)
	return tex, err
}

func (s *Studio) LoadBackgroundFromURL(ctx context.Context, url string, opts environment.BackgroundOptions) (*scene.Texture, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	tex, err := s.env.LoadBackgroundFromURL(ctx, url, opts)
	s.metrics.RecordEnvironmentLoad("background", err)
	return tex, err
}

// ResetEnvironment restores the configured HDRI and drops any custom
// background.
func (s *Studio) ResetEnvironment(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.env.ResetToDefault(ctx)
	s.metrics.RecordEnvironmentLoad("reset", err)
	return err
}

// SetEnvMapIntensity changes the image-based lighting strength on every
// tracked material and in the path tracer.
func (s *Studio) SetEnvMapIntensity(v float32) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.env.SetEnvMapIntensity(v)
	return nil
}

// ready checks the studio state without holding the lock across the
// environment call, which takes it itself.
func (s *Studio) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked()
}
