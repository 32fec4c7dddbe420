package http

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"obesityboard/pipeline"
)

type predictKey struct {
	version uint64
	input   pipeline.Input
}

// predictCache 按快照版本缓存预测结果，快照替换后旧条目自然失效
type predictCache struct {
	cache *lru.Cache[predictKey, pipeline.Prediction]
}

func newPredictCache(size int) (*predictCache, error) {
	if size <= 0 {
		return &predictCache{}, nil
	}
	c, err := lru.New[predictKey, pipeline.Prediction](size)
	if err != nil {
		return nil, err
	}
	return &predictCache{cache: c}, nil
}

func (c *predictCache) get(version uint64, in pipeline.Input) (pipeline.Prediction, bool) {
	if c.cache == nil {
		return pipeline.Prediction{}, false
	}
	return c.cache.Get(predictKey{version, in})
}

func (c *predictCache) add(version uint64, in pipeline.Input, p pipeline.Prediction) {
	if c.cache == nil {
		return
	}
	c.cache.Add(predictKey{version, in}, p)
}

func (c *predictCache) len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}
