package rediskey

import "fmt"

// Affiliate keys (shared by the API and the worker)
const (
	AffiliatePrefix     = "affiliate"
	AffiliateCodePrefix = "affiliate:code"
	SequencePrefix      = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildAffiliateCodeKey returns "affiliate:code:{code}"
func BuildAffiliateCodeKey(code string) string {
	return NamespaceKey(AffiliateCodePrefix, code)
}

// BuildSequenceKey returns "seq:{prefix}:{day}"
func BuildSequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, NamespaceKey(prefix, day))
}
