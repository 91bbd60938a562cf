package outlet

import (
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"

	"github.com/wlt-go/wlt/src/internal/config"
)

const (
	tmplHours   = "hours"
	tmplSeconds = "seconds"
)

// Labels renders the display strings shared by the web page and the SSH menu.
type Labels struct {
	duration  *fasttemplate.Template
	remaining *fasttemplate.Template
	permanent string
	unset     string
}

func NewLabels(cfg config.LabelsConfig) (*Labels, error) {
	duration, err := fasttemplate.NewTemplate(cfg.Duration, "{", "}")
	if err != nil {
		return nil, err
	}
	remaining, err := fasttemplate.NewTemplate(cfg.Remaining, "{", "}")
	if err != nil {
		return nil, err
	}
	return &Labels{
		duration:  duration,
		remaining: remaining,
		permanent: cfg.Permanent,
		unset:     cfg.Default,
	}, nil
}

// Duration renders an allowed duration. 0 is the permanent label.
func (l *Labels) Duration(hours int) string {
	if hours == 0 {
		return l.permanent
	}
	return l.duration.ExecuteString(map[string]interface{}{
		tmplHours: strconv.Itoa(hours),
	})
}

// Remaining renders the time left on an entry. 0 is the permanent label.
func (l *Labels) Remaining(expires time.Duration) string {
	if expires <= 0 {
		return l.permanent
	}
	return l.remaining.ExecuteString(map[string]interface{}{
		tmplSeconds: strconv.FormatInt(int64(expires/time.Second), 10),
	})
}

// Unset is shown when an address has no entry.
func (l *Labels) Unset() string {
	return l.unset
}

// Outlets renders the outlets selected by mark, joined with " + ".
// A mark matching no outlet of any group is shown in hex.
func (l *Labels) Outlets(c *Catalog, mark uint32, found bool) string {
	if !found {
		return l.unset
	}
	var names []string
	for _, g := range c.groups {
		if o, ok := g.Selection(mark); ok {
			names = append(names, o.Name)
		}
	}
	if len(names) == 0 {
		return "0x" + strconv.FormatUint(uint64(mark), 16)
	}
	return strings.Join(names, " + ")
}
