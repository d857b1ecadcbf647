package domain

import "testing"

func TestRowsMatchSchema(t *testing.T) {
	pupil := &Vec2{X: 1, Y: 2}
	records := []Record{
		&HeartRateRecord{At: "t", Rate: 72},
		&EyeTrackingRecord{At: "t", Left: EyeSample{PupilPosition: pupil}, Right: EyeSample{}},
		&CameraFrameRecord{At: "t", FrameNumber: 3, FPS: 29.5},
		&ImuRecord{At: "t", Samples: []ImuSample{{Index: 0}, {Index: 1}}},
	}
	for _, rec := range records {
		schema := Schema(rec.Kind())
		if len(schema) == 0 || schema[0] != "Time" {
			t.Fatalf("%s: schema must start with Time, got %v", rec.Kind(), schema)
		}
		for _, row := range rec.Rows() {
			if len(row) != len(schema) {
				t.Fatalf("%s: row has %d columns, schema %d", rec.Kind(), len(row), len(schema))
			}
			if row[0] != rec.Time() {
				t.Fatalf("%s: first column %q, want %q", rec.Kind(), row[0], rec.Time())
			}
		}
	}
}

func TestHeartRateRow(t *testing.T) {
	rows := (&HeartRateRecord{At: "2023-10-03 10:00:00:123", Rate: 72}).Rows()
	if len(rows) != 1 || rows[0][0] != "2023-10-03 10:00:00:123" || rows[0][1] != "72" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestFloatFormattingIsShortest(t *testing.T) {
	rows := (&CameraFrameRecord{At: "t", FrameNumber: 1, FPS: 29.97}).Rows()
	if rows[0][2] != "29.97" {
		t.Fatalf("expected 29.97, got %q", rows[0][2])
	}
}

func TestCaptureConfigEnabledStreams(t *testing.T) {
	c := CaptureConfig{EyeTracking: true, Imu: true}
	got := c.EnabledStreams()
	if len(got) != 2 || got[0] != EyeTracking || got[1] != Imu {
		t.Fatalf("unexpected enabled streams %v", got)
	}
	if !c.Any() || (CaptureConfig{}).Any() {
		t.Fatalf("Any() mismatch")
	}
}

func TestStreamForMessageType(t *testing.T) {
	if k, ok := StreamFor(MessageCameraImage); !ok || k != CameraFrame {
		t.Fatalf("StreamFor(camera) = %v, %v", k, ok)
	}
	if _, ok := StreamFor(MessageVSync); ok {
		t.Fatalf("vsync must not map to a stream")
	}
}
