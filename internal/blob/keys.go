package blob

import (
	"fmt"
	"strings"

	"notekeeper-zipjobs/internal/common"
)

const poisonPrefix = "poison-messages/"

// AttachmentKey is "{entityID}/{name}".
func AttachmentKey(entityID, name string) string {
	return entityID + "/" + name
}

// AttachmentPrefix lists every attachment of an entity.
func AttachmentPrefix(entityID string) string {
	return entityID + "/"
}

// ResultKey is "{entityID}-zip/{jobID}".
func ResultKey(entityID, jobID string) string {
	return ResultPrefix(entityID) + jobID
}

// ResultPrefix lists every archive of an entity.
func ResultPrefix(entityID string) string {
	return entityID + "-zip/"
}

// PoisonKey is where the raw body of a poisoned message is kept.
func PoisonKey(messageID string) string {
	return poisonPrefix + messageID + ".txt"
}

// ValidName checks an attachment or job name used as a single key segment.
func ValidName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is empty", common.ErrValidation)
	case len(name) > 255:
		return fmt.Errorf("%w: name is longer than 255 bytes", common.ErrValidation)
	case name == "." || name == "..":
		return fmt.Errorf("%w: name %q is reserved", common.ErrValidation, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: name %q contains a path separator", common.ErrValidation, name)
	}
	return nil
}

// validKey rejects keys that could escape a filesystem root.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: invalid key %q", common.ErrValidation, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if err := ValidName(seg); err != nil {
			return err
		}
	}
	return nil
}
