package extract

import "errors"

var errExtractionFailed = errors.New("extract: mock engine configured to fail for this text")
