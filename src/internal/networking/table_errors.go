package networking

import (
	stderrors "errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/wlt-go/wlt/src/internal/errors"
)

// classifyErrno maps a netlink failure to a table error kind.
func classifyErrno(err error) errors.TableErrorKind {
	switch {
	case stderrors.Is(err, unix.EPERM), stderrors.Is(err, unix.EACCES):
		return errors.TableErrPermission
	case stderrors.Is(err, unix.ENOENT):
		return errors.TableErrMissingMap
	case stderrors.Is(err, unix.EINVAL):
		return errors.TableErrMalformedKey
	case stderrors.Is(err, unix.EEXIST), stderrors.Is(err, unix.EBUSY):
		return errors.TableErrConflict
	case stderrors.Is(err, unix.EOPNOTSUPP):
		return errors.TableErrUnsupported
	default:
		return errors.TableErrFailed
	}
}

// classifyNftOutput maps nft CLI stderr to a table error kind.
func classifyNftOutput(stderr string) errors.TableErrorKind {
	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "operation not permitted"), strings.Contains(msg, "permission denied"):
		return errors.TableErrPermission
	case strings.Contains(msg, "no such file or directory"), strings.Contains(msg, "does not exist"):
		return errors.TableErrMissingMap
	case strings.Contains(msg, "file exists"), strings.Contains(msg, "resource busy"):
		return errors.TableErrConflict
	case strings.Contains(msg, "timeout flag"), strings.Contains(msg, "not supported"):
		return errors.TableErrUnsupported
	case strings.Contains(msg, "datatype mismatch"), strings.Contains(msg, "invalid"):
		return errors.TableErrMalformedKey
	default:
		return errors.TableErrFailed
	}
}

// tableError wraps a netlink failure of op.
func tableError(op string, ref fmt.Stringer, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *errors.Error
	if stderrors.As(err, &domainErr) {
		return err
	}
	return errors.NewTableError(classifyErrno(err), fmt.Sprintf("%s %s", op, ref), err)
}

// conflictError rewords a rejected compare-and-swap so logs name the expected mark.
func conflictError(key fmt.Stringer, m fmt.Stringer, old uint32, err error) error {
	if !errors.IsConflict(err) {
		return err
	}
	return errors.NewTableError(errors.TableErrConflict,
		fmt.Sprintf("entry of %s in %s no longer holds %#x", key, m, old), err)
}
