package docker_test

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

type mockWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newMockWriter() *mockWriter {
	return &mockWriter{}
}

func (m *mockWriter) write(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf.WriteString(s)
}

func (m *mockWriter) Print(v ...interface{})                 { m.write(fmt.Sprint(v...)) }
func (m *mockWriter) Printf(format string, v ...interface{}) { m.write(fmt.Sprintf(format, v...)) }
func (m *mockWriter) Println(v ...interface{})               { m.write(fmt.Sprintln(v...)) }
func (m *mockWriter) Warning(v ...interface{})               { m.write("Warning: " + fmt.Sprintln(v...)) }
func (m *mockWriter) Warningf(format string, v ...interface{}) {
	m.write("Warning: " + fmt.Sprintf(format, v...) + "\n")
}
func (m *mockWriter) Fatal(v ...interface{}) { m.write("Fatal: " + fmt.Sprintln(v...)) }
func (m *mockWriter) Fatalf(format string, v ...interface{}) {
	m.write("Fatal: " + fmt.Sprintf(format, v...) + "\n")
}
func (m *mockWriter) GetWriter() io.Writer { return m }
func (m *mockWriter) GetErrorWriter() io.Writer { return m }

func (m *mockWriter) Write(p []byte) (int, error) {
	m.write(string(p))
	return len(p), nil
}

func (m *mockWriter) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}
