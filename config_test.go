package zoe

import "testing"

func TestValidateAcceptsDefaults(t *testing.T) {
	if code, ok := DefaultConfig().validate(); !ok {
		t.Fatalf("DefaultConfig().validate() = %v, %v, want ok", code, ok)
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
		want ResultCode
	}{
		{"thread num too high", func(c *Config) { c.ThreadNum = 101 }, InvalidThreadNum},
		{"negative connect timeout", func(c *Config) { c.NetworkConnectionTimeout = -1 }, InvalidNetworkConnTimeout},
		{"negative probe retries", func(c *Config) { c.RetryTimesOfFetchFileInfo = -1 }, InvalidFetchFileInfoRetryTimes},
		{"unknown slice policy", func(c *Config) { c.SlicePolicy = SlicePolicy(99) }, InvalidSlicePolicy},
		{"fixed size with zero value", func(c *Config) { c.SlicePolicy = SlicePolicyFixedSize; c.SlicePolicyValue = 0 }, InvalidSlicePolicy},
		{"unknown hash verify policy", func(c *Config) { c.HashVerifyPolicy = HashVerifyPolicy(99) }, InvalidHashPolicy},
		{"unknown hash type", func(c *Config) { c.HashType = HashType(99) }, InvalidHashPolicy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mod(&cfg)
			code, ok := cfg.validate()
			if ok {
				t.Fatalf("validate() = ok, want %v", tc.want)
			}
			if code != tc.want {
				t.Errorf("validate() code = %v, want %v", code, tc.want)
			}
		})
	}
}
