//go:build linux

package i2c

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func Test_Ioctl_ClassifyRead_Maps_Errnos_To_Presence(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantPresent bool
		wantErr     error
	}{
		{"ack", nil, true, nil},
		{"nack_enxio", unix.ENXIO, false, nil},
		{"nack_eremoteio", unix.EREMOTEIO, false, nil},
		{"nack_eio", unix.EIO, false, nil},
		{"eacces", unix.EACCES, false, ErrPermission},
		{"eperm", unix.EPERM, false, ErrPermission},
		{"etimedout", unix.ETIMEDOUT, false, ErrProbeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			present, err := classifyRead("/dev/i2c-0", tt.err)

			if got, want := present, tt.wantPresent; got != want {
				t.Fatalf("present=%v, want=%v", got, want)
			}

			if tt.wantErr == nil && err != nil {
				t.Fatalf("err=%v, want nil", err)
			}

			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, want %v", err, tt.wantErr)
			}
		})
	}
}

func Test_Ioctl_ClassifyOpen_Returns_ErrPermission_When_Access_Denied(t *testing.T) {
	err := classifyOpen("/dev/i2c-0", unix.EACCES)

	if !errors.Is(err, ErrPermission) {
		t.Fatalf("err=%v, want ErrPermission", err)
	}

	if !errors.Is(err, unix.EACCES) {
		t.Fatalf("err=%v should keep the errno", err)
	}
}

func Test_Ioctl_Probe_Fails_When_Bus_Device_Is_Missing(t *testing.T) {
	p := NewIoctl(t.TempDir())

	present, err := p.Probe(context.Background(), 3, 0x54)

	if !errors.Is(err, ErrProbeFailed) {
		t.Fatalf("err=%v, want ErrProbeFailed", err)
	}

	if !errors.Is(err, unix.ENOENT) {
		t.Fatalf("err=%v, want ENOENT", err)
	}

	if present {
		t.Fatalf("present=true for missing bus device")
	}
}
