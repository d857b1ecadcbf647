package insightcap

import "context"

// Conf loads YAML from disk and builds a Recorder with the given options.
func Conf(path string, opts ...RecorderOption) (*Recorder, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewRecorder(cfg, opts...)
}

// Capture is a shortcut for Conf followed by Run.
func Capture(ctx context.Context, path string, opts ...RecorderOption) error {
	r, err := Conf(path, opts...)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}
