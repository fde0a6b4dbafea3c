// Command zoed is a thin cobra CLI over the zoe engine, grounded on the
// teacher's cmd/root.go + cmd/http.go flag-to-config wiring: package-level
// flag variables bound with cmd.Flags().*VarP on a single root command.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"zoe"
	"zoe/internal/display"
	"zoe/internal/zlog"
)

var (
	outputPath   string
	threadNum    int
	timeout      time.Duration
	maxSpeed     int64
	minSpeed     int64
	minSpeedSecs int
	diskCache    int64
	proxyURL     string
	verifyCA     bool
	caPath       string
	verifyHost   bool
	cookieList   string
	useHead      bool
	hashType     string
	hashValue    string
	headers      []string
	debug        bool
)

var zoedVersion = "dev"

func main() {
	root := &cobra.Command{
		Use:     "zoed [URL] --output PATH",
		Short:   "zoed resumes and drives a multi-slice download",
		Version: zoedVersion,
		Args:    cobra.ExactArgs(1),
		RunE:    runGet,
	}
	root.Flags().StringVarP(&outputPath, "output", "o", "", "target file path (required)")
	root.Flags().IntVarP(&threadNum, "threads", "t", 4, "max concurrent slices (1-100)")
	root.Flags().DurationVar(&timeout, "connect-timeout", 3*time.Second, "connection timeout")
	root.Flags().Int64Var(&maxSpeed, "max-speed", -1, "max aggregate bytes/sec, -1 for unlimited")
	root.Flags().Int64Var(&minSpeed, "min-speed", -1, "min aggregate bytes/sec before giving up, -1 to disable")
	root.Flags().IntVar(&minSpeedSecs, "min-speed-duration", 0, "seconds the min-speed watchdog tolerates before stopping")
	root.Flags().Int64Var(&diskCache, "disk-cache", 20*1024*1024, "write-back cache budget in bytes")
	root.Flags().StringVar(&proxyURL, "proxy", "", "proxy URL")
	root.Flags().BoolVar(&verifyCA, "verify-ca", false, "verify server TLS certificate")
	root.Flags().StringVar(&caPath, "ca-path", "", "CA bundle path")
	root.Flags().BoolVar(&verifyHost, "verify-host", false, "verify TLS hostname")
	root.Flags().StringVar(&cookieList, "cookies", "", "Netscape-format cookie list")
	root.Flags().BoolVar(&useHead, "use-head", true, "use HEAD instead of ranged GET to probe file info")
	root.Flags().StringVar(&hashType, "hash-type", "", "expected hash algorithm: md5, crc32, sha256")
	root.Flags().StringVar(&hashValue, "hash-value", "", "expected hash value, empty disables verification")
	root.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header, repeatable, KEY:VALUE")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, display.Failure("zoed", err))
		os.Exit(1)
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	zlog.SetDebug(debug)
	if outputPath == "" {
		return fmt.Errorf("--output is required")
	}
	cfg := zoe.DefaultConfig()
	cfg.ThreadNum = threadNum
	cfg.NetworkConnectionTimeout = timeout
	cfg.FetchFileInfoUseHead = useHead
	cfg.MaxDownloadSpeed = maxSpeed
	cfg.MinDownloadSpeed = minSpeed
	cfg.MinDownloadSpeedDuration = time.Duration(minSpeedSecs) * time.Second
	cfg.DiskCacheSize = diskCache
	cfg.Proxy = proxyURL
	cfg.VerifyCAEnabled = verifyCA
	cfg.CAPath = caPath
	cfg.VerifyHostEnabled = verifyHost
	cfg.CookieList = cookieList
	cfg.HTTPHeaders = parseHeaderArgs(headers)
	if hashValue != "" {
		ht, err := parseHashType(hashType)
		if err != nil {
			return err
		}
		cfg.HashType = ht
		cfg.ExpectedHash = hashValue
		cfg.HashVerifyPolicy = zoe.HashVerifyAlways
	}

	session := zoe.NewSession(cfg)
	fut := session.Start(args[0], outputPath,
		func(code zoe.ResultCode) {},
		func(total, downloaded int64) {
			fmt.Fprintf(os.Stderr, "\r%s", display.Line(downloaded, total, 0))
		},
		nil,
	)
	code := fut.Wait()
	fmt.Fprintln(os.Stderr)
	if !code.OK() {
		fmt.Fprintln(os.Stderr, display.Failure(outputPath, code))
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, display.Success(outputPath))
	return nil
}

// parseHeaderArgs turns "-H Key:Value" flags into an ordered header list,
// generalizing the teacher's utils.ParseHeaderArgs from a plain map to the
// duplicate-key-preserving multimap the engine needs.
func parseHeaderArgs(args []string) []zoe.HeaderKV {
	var out []zoe.HeaderKV
	for _, a := range args {
		for i := 0; i < len(a); i++ {
			if a[i] == ':' {
				out = append(out, zoe.HeaderKV{Key: a[:i], Value: a[i+1:]})
				break
			}
		}
	}
	return out
}

func parseHashType(name string) (zoe.HashType, error) {
	switch name {
	case "md5", "MD5":
		return zoe.HashMD5, nil
	case "crc32", "CRC32":
		return zoe.HashCRC32, nil
	case "sha256", "SHA256", "sha-256":
		return zoe.HashSHA256, nil
	default:
		return 0, fmt.Errorf("zoed: unknown hash type %q", name)
	}
}
