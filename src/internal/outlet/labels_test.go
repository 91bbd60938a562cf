package outlet

import (
	"testing"
	"time"

	"github.com/wlt-go/wlt/src/internal/config"
)

func TestLabels(t *testing.T) {
	l, err := NewLabels(config.DefaultConfig().Labels)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := l.Duration(4); got != "4小时" {
		t.Errorf("Expected 4小时, got %s", got)
	}
	if got := l.Duration(0); got != "永久" {
		t.Errorf("Expected 永久, got %s", got)
	}
	if got := l.Remaining(3599*time.Second + 500*time.Millisecond); got != "3599秒" {
		t.Errorf("Expected 3599秒, got %s", got)
	}
	if got := l.Remaining(0); got != "永久" {
		t.Errorf("Expected 永久 for no expiry, got %s", got)
	}
}

func TestLabelsOutlets(t *testing.T) {
	l, _ := NewLabels(config.DefaultConfig().Labels)
	c, _ := NewCatalog(testGroups(), []int{1})

	tests := []struct {
		mark  uint32
		found bool
		want  string
	}{
		{0, false, "默认"},
		{0x101, true, "电信 + 覆盖CN路由"},
		{0x2, true, "移动 + 默认"},
		{0x7, true, "默认"},
		{0x707, true, "0x707"},
	}

	for _, tt := range tests {
		if got := l.Outlets(c, tt.mark, tt.found); got != tt.want {
			t.Errorf("Outlets(%#x, %v) = %q, want %q", tt.mark, tt.found, got, tt.want)
		}
	}
}

func TestLabelsOpened(t *testing.T) {
	l, _ := NewLabels(config.DefaultConfig().Labels)
	c, _ := NewCatalog(testGroups(), []int{4, 0})

	if got := l.Opened(c, 0x101, 4*time.Hour); got != "网络已开通：出口「电信 + 覆盖CN路由」，时限「4小时」" {
		t.Errorf("Unexpected message: %s", got)
	}
	if got := l.Opened(c, 0x1, 0); got != "网络已开通：出口「电信 + 默认」，时限「永久」" {
		t.Errorf("Unexpected message: %s", got)
	}
}
