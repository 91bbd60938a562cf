package outlet

import (
	"fmt"
	"time"
)

// Messages shown by the front-ends.
const (
	MsgInvalidOutlet   = "无效的出口选择：%s"
	MsgInvalidDuration = "无效的时限选择"
	MsgReset           = "网络已重置"
	MsgResetFailed     = "重置网络失败"
	MsgApplyFailed     = "设置网络出口失败"
	MsgCancelled       = "已取消"

	msgOpened = "网络已开通：出口「%s」，时限「%s」"
)

// Opened renders the confirmation for a written mark and ttl.
func (l *Labels) Opened(c *Catalog, mark uint32, ttl time.Duration) string {
	return fmt.Sprintf(msgOpened, l.Outlets(c, mark, true), l.Duration(int(ttl/time.Hour)))
}
