package storage

import (
	"fmt"
	"strings"
)

// ValidateBucketName checks a bucket name against the S3 naming rules:
// 3-63 characters, lowercase letters, digits, dots and hyphens only,
// beginning and ending with a letter or digit, no adjacent dots, and
// not formatted like an IP address.
func ValidateBucketName(bucket string) error {
	if len(bucket) < 3 || len(bucket) > 63 {
		return fmt.Errorf("%w: %q must be between 3 and 63 characters", ErrInvalidBucketName, bucket)
	}

	for _, c := range bucket {
		if !isBucketNameChar(c) {
			return fmt.Errorf(
				"%w: %q may only contain lowercase letters, digits, dots and hyphens",
				ErrInvalidBucketName, bucket,
			)
		}
	}

	if !isAlnum(rune(bucket[0])) || !isAlnum(rune(bucket[len(bucket)-1])) {
		return fmt.Errorf("%w: %q must begin and end with a letter or digit", ErrInvalidBucketName, bucket)
	}

	if strings.Contains(bucket, "..") {
		return fmt.Errorf("%w: %q must not contain adjacent dots", ErrInvalidBucketName, bucket)
	}

	if looksLikeIPAddress(bucket) {
		return fmt.Errorf("%w: %q must not be formatted like an IP address", ErrInvalidBucketName, bucket)
	}

	return nil
}

func isBucketNameChar(c rune) bool {
	return isAlnum(c) || c == '.' || c == '-'
}

func isAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// looksLikeIPAddress reports whether the name is four dot-separated
// numeric octets in the 0-255 range.
func looksLikeIPAddress(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}

	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}

		num := 0

		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}

			num = num*10 + int(c-'0')
		}

		if num > 255 {
			return false
		}
	}

	return true
}
