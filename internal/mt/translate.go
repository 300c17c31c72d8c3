// Package mt wraps Amazon Translate as the system's machine-translation
// collaborator, behind a circuit breaker so a struggling region backs off
// instead of stalling every room's translation worker.
//
// Grounded on internal/aws/translate.go (unchanged API shape), with the
// circuit breaker and cache wiring the original pipeline.go assembled
// inline moved to the call boundary here instead.
package mt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/translate"
	"github.com/aws/aws-sdk-go-v2/service/translate/types"
	"go.uber.org/zap"

	"eum-captions/internal/awsclient"
	"eum-captions/internal/cache"
)

// langCodes maps the system's internal language codes to AWS Translate's.
// Identity for every code the collaborator already understands; present so
// a future internal code that diverges from AWS's has one place to redirect.
var langCodes = map[string]string{
	"ko": "ko", "en": "en", "ja": "ja", "zh": "zh",
	"es": "es", "fr": "fr", "de": "de",
}

func awsCode(lang string) string {
	if c, ok := langCodes[lang]; ok {
		return c
	}
	return lang
}

// Collaborator performs text translation through Amazon Translate.
type Collaborator struct {
	client  *translate.Client
	breaker *awsclient.CircuitBreaker
	cache   *cache.Cache
	log     *zap.SugaredLogger
}

// New constructs a Collaborator. A nil translationCache disables the
// translation cache entirely (every call reaches AWS).
func New(cfg aws.Config, breaker *awsclient.CircuitBreaker, translationCache *cache.Cache, logger *zap.SugaredLogger) *Collaborator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Collaborator{
		client:  translate.NewFromConfig(cfg),
		breaker: breaker,
		cache:   translationCache,
		log:     logger,
	}
}

// Translate returns text unchanged if it's empty or source == target.
// Otherwise it checks the cache, then falls through to Amazon Translate
// under circuit breaker protection, caching the result on success.
func (c *Collaborator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}
	if sourceLang == targetLang {
		return text, nil
	}

	var cacheKey string
	if c.cache != nil {
		cacheKey = cache.Key(sourceLang, targetLang, text)
		if v, ok := c.cache.Get(cacheKey); ok {
			return v, nil
		}
	}

	var result string
	call := func() error {
		out, err := c.client.TranslateText(ctx, &translate.TranslateTextInput{
			Text:               aws.String(text),
			SourceLanguageCode: aws.String(awsCode(sourceLang)),
			TargetLanguageCode: aws.String(awsCode(targetLang)),
		})
		if err != nil {
			return err
		}
		result = aws.ToString(out.TranslatedText)
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return "", fmt.Errorf("translate %s->%s: %w", sourceLang, targetLang, err)
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, result)
	}
	c.log.Debugw("translated", "source_lang", sourceLang, "target_lang", targetLang, "chars", len(text))
	return result, nil
}

// ListSupportedLanguages fetches the full set of language codes Amazon
// Translate currently supports, paging through ListLanguages until
// NextToken is exhausted. Called once at startup to populate the
// MT-supported target-language set.
func (c *Collaborator) ListSupportedLanguages(ctx context.Context) ([]string, error) {
	var codes []string
	var nextToken *string
	for {
		out, err := c.client.ListLanguages(ctx, &translate.ListLanguagesInput{
			DisplayLanguageCode: types.DisplayLanguageCodeEn,
			NextToken:           nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("list translate languages: %w", err)
		}
		for _, l := range out.Languages {
			codes = append(codes, aws.ToString(l.LanguageCode))
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return codes, nil
}

// FetchSupportedLanguagesFromEndpoint polls an external endpoint that
// returns a JSON array of supported language codes, for deployments that
// front Amazon Translate with a capability-filtering proxy. Grounded on
// schedule.Provider's fetch-and-decode shape.
func FetchSupportedLanguagesFromEndpoint(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build supported langs request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch supported langs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch supported langs: unexpected status %d", resp.StatusCode)
	}
	var codes []string
	if err := json.NewDecoder(resp.Body).Decode(&codes); err != nil {
		return nil, fmt.Errorf("decode supported langs: %w", err)
	}
	return codes, nil
}
