package mantis_arm

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"

	"mantis_arm/kinematics"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) HandleLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestSerialLinkReadsLines(t *testing.T) {
	host, controller := net.Pipe()
	defer controller.Close()

	link := NewSerialLink("pipe", host, logging.NewTestLogger(t))
	rec := &lineRecorder{}
	link.Start(rec)

	// split writes must be reassembled into whole lines
	_, err := controller.Write([]byte("HELLO WORLD! I AM AHROBOT #5\r\nA0 B1 C"))
	require.NoError(t, err)
	_, err = controller.Write([]byte("2 D3 E4\n\nok\n"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(rec.Lines()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"HELLO WORLD! I AM AHROBOT #5", "A0 B1 C2 D3 E4", "ok"}, rec.Lines())

	require.NoError(t, link.Close())
	assert.Error(t, link.WriteLine("R1"))
}

func TestSerialLinkWritesLines(t *testing.T) {
	host, controller := net.Pipe()
	defer controller.Close()

	link := NewSerialLink("pipe", host, logging.NewTestLogger(t))
	defer link.Close()

	got := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(controller).ReadString('\n')
		got <- line
	}()

	require.NoError(t, link.WriteLine("R0 B5"))
	select {
	case line := <-got:
		assert.Equal(t, "R0 B5\n", line)
	case <-time.After(time.Second):
		t.Fatal("controller never received the line")
	}
}

func TestSerialLinkDrivesArm(t *testing.T) {
	host, controller := net.Pipe()
	defer controller.Close()

	link := NewSerialLink("pipe", host, logging.NewTestLogger(t))
	defer link.Close()
	model, err := kinematics.NewModel(kinematics.ModelMantis, nil, nil)
	require.NoError(t, err)
	a, err := NewArm(model, link, nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	defer a.Close()
	link.Start(a)

	received := make(chan string, 8)
	go func() {
		r := bufio.NewReader(controller)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			received <- line
		}
	}()

	_, err = controller.Write([]byte("HELLO WORLD! I AM AHROBOT #8\n"))
	require.NoError(t, err)
	assert.Equal(t, "G90\n", <-received)
	assert.Equal(t, "R1\n", <-received)
	assert.Equal(t, int64(8), a.RobotUID())
}

func TestSharedLinks(t *testing.T) {
	var opened []*SerialLink
	openLink = func(cfg *MantisConfig, logger logging.Logger) (*SerialLink, error) {
		if cfg.Port == "/dev/missing" {
			return nil, errors.New("no such device")
		}
		host, controller := net.Pipe()
		t.Cleanup(func() { controller.Close() })
		link := NewSerialLink(cfg.Port, host, logger)
		opened = append(opened, link)
		return link, nil
	}
	defer func() { openLink = OpenSerialLink }()

	logger := logging.NewTestLogger(t)
	cfg := &MantisConfig{Port: "/dev/ttyACM0", Baudrate: 57600}

	first, err := GetSharedLink(cfg, logger)
	require.NoError(t, err)
	second, err := GetSharedLink(&MantisConfig{Port: "/dev/ttyACM0", Baudrate: 57600}, logger)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, opened, 1)

	_, err = GetSharedLink(&MantisConfig{Port: "/dev/ttyACM0", Baudrate: 9600}, logger)
	assert.Error(t, err, "a port cannot be shared at two baud rates")

	_, err = GetSharedLink(&MantisConfig{Port: "/dev/missing"}, logger)
	assert.Error(t, err)

	count, ok := SharedLinkStatus("/dev/ttyACM0")
	assert.True(t, ok)
	assert.Equal(t, 2, count)

	require.NoError(t, ReleaseSharedLink("/dev/ttyACM0"))
	count, ok = SharedLinkStatus("/dev/ttyACM0")
	assert.True(t, ok)
	assert.Equal(t, 1, count)

	require.NoError(t, ReleaseSharedLink("/dev/ttyACM0"))
	_, ok = SharedLinkStatus("/dev/ttyACM0")
	assert.False(t, ok)
	assert.Error(t, first.WriteLine("R1"))
}
