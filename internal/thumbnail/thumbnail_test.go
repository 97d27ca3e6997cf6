package thumbnail_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipeassist/recipe-assistant/internal/thumbnail"
)

type fakeImages struct {
	prompt string
	err    error
}

func (f *fakeImages) Generate(_ context.Context, prompt string) ([]byte, error) {
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return []byte("\x89PNG"), nil
}

type fakeUploader struct {
	key, contentType string
	data             []byte
	err              error
}

func (f *fakeUploader) Upload(_ context.Context, key string, data []byte, contentType string) (string, error) {
	f.key, f.data, f.contentType = key, data, contentType
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/" + key, nil
}

type recordingObserver struct {
	calls int
	errs  int
}

func (r *recordingObserver) RecordThumbnail(_ time.Duration, err error) {
	r.calls++
	if err != nil {
		r.errs++
	}
}

func TestGenerateForRecipe_Success(t *testing.T) {
	images, uploads, obs := &fakeImages{}, &fakeUploader{}, &recordingObserver{}
	g := thumbnail.NewGenerator(images, uploads, "/thumbs/", obs)

	res := g.GenerateForRecipe(context.Background(), thumbnail.Recipe{
		ID:          "r1",
		Title:       "Shakshuka",
		Ingredients: []string{"eggs", "tomatoes"},
	}, "u1")

	assert.True(t, res.Success)
	assert.Equal(t, "r1", res.RecipeID)
	assert.Equal(t, "https://cdn.example/thumbs/u1/r1.png", res.ThumbnailURL)
	assert.Empty(t, res.Error)
	assert.Equal(t, "image/png", uploads.contentType)
	assert.Contains(t, images.prompt, "Shakshuka")
	assert.Contains(t, images.prompt, "eggs, tomatoes")
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, 0, obs.errs)
}

func TestGenerateForRecipe_FailuresAreReported(t *testing.T) {
	tests := []struct {
		name    string
		images  *fakeImages
		uploads *fakeUploader
		userID  string
	}{
		{"image error", &fakeImages{err: errors.New("content policy")}, &fakeUploader{}, "u1"},
		{"upload error", &fakeImages{}, &fakeUploader{err: errors.New("access denied")}, "u1"},
		{"no user", &fakeImages{}, &fakeUploader{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			g := thumbnail.NewGenerator(tt.images, tt.uploads, "thumbs", obs)
			res := g.GenerateForRecipe(context.Background(), thumbnail.Recipe{ID: "r1", Title: "Soup"}, tt.userID)

			assert.False(t, res.Success)
			assert.Empty(t, res.ThumbnailURL)
			assert.NotEmpty(t, res.Error)
			assert.Equal(t, 1, obs.errs)
		})
	}
}

func TestGenerateForRecipe_Unconfigured(t *testing.T) {
	g := thumbnail.NewGenerator(nil, nil, "", nil)
	res := g.GenerateForRecipe(context.Background(), thumbnail.Recipe{Title: "Soup"}, "u1")
	assert.False(t, res.Success)
}

func TestGenerateForRecipe_UnsavedRecipeGetsRandomKey(t *testing.T) {
	uploads := &fakeUploader{}
	g := thumbnail.NewGenerator(&fakeImages{}, uploads, "thumbs", nil)
	res := g.GenerateForRecipe(context.Background(), thumbnail.Recipe{Title: "Soup"}, "u1")

	require.True(t, res.Success)
	assert.Regexp(t, `^thumbs/u1/[0-9a-f-]{36}\.png$`, uploads.key)
}

// ─── OpenAI ──────────────────────────────────────────────────

type fakeImagesAPI struct {
	got  openai.ImageGenerateParams
	resp *openai.ImagesResponse
	err  error
}

func (f *fakeImagesAPI) Generate(_ context.Context, body openai.ImageGenerateParams, _ ...option.RequestOption) (*openai.ImagesResponse, error) {
	f.got = body
	return f.resp, f.err
}

func TestOpenAIImages_DecodesBase64(t *testing.T) {
	api := &fakeImagesAPI{resp: &openai.ImagesResponse{Data: []openai.Image{{B64JSON: base64.StdEncoding.EncodeToString([]byte("png-bytes"))}}}}
	o := thumbnail.NewOpenAIImages(api, "")

	data, err := o.Generate(context.Background(), "a cake")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, "a cake", api.got.Prompt)
	assert.Equal(t, openai.ImageModelDallE3, api.got.Model)
	assert.Equal(t, openai.ImageGenerateParamsResponseFormatB64JSON, api.got.ResponseFormat)
}

func TestOpenAIImages_EmptyResponse(t *testing.T) {
	o := thumbnail.NewOpenAIImages(&fakeImagesAPI{resp: &openai.ImagesResponse{}}, "dall-e-2")
	_, err := o.Generate(context.Background(), "a cake")
	assert.Error(t, err)
}

// ─── S3 ──────────────────────────────────────────────────────

type fakeS3 struct {
	in  *s3.PutObjectInput
	err error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	return &s3.PutObjectOutput{}, f.err
}

type fakePresigner struct {
	key string
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.key = *in.Key
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3/" + *in.Key + "?X-Amz-Signature=abc", Method: http.MethodGet}, nil
}

func TestS3Uploader_StoresReferenceAndPresignsOnRead(t *testing.T) {
	api, pre := &fakeS3{}, &fakePresigner{}
	u := thumbnail.NewS3Uploader(api, pre, thumbnail.S3Config{Bucket: "thumbs"})

	ref, err := u.Upload(context.Background(), "u1/r1.png", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "s3://thumbs/u1/r1.png", ref)
	assert.Empty(t, pre.key, "nothing is signed at upload time")
	assert.Equal(t, "thumbs", *api.in.Bucket)
	assert.Equal(t, "image/png", *api.in.ContentType)
	body, _ := io.ReadAll(api.in.Body)
	assert.Equal(t, "img", string(body))

	url, err := u.ResolveURL(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3/u1/r1.png?X-Amz-Signature=abc", url)
	assert.Equal(t, "u1/r1.png", pre.key)
}

func TestS3Uploader_ResolveURLPassesOtherValuesThrough(t *testing.T) {
	pre := &fakePresigner{}
	u := thumbnail.NewS3Uploader(&fakeS3{}, pre, thumbnail.S3Config{Bucket: "thumbs"})

	for _, stored := range []string{"https://cdn.example/a.png", "s3://other-bucket/a.png", ""} {
		url, err := u.ResolveURL(context.Background(), stored)
		require.NoError(t, err)
		assert.Equal(t, stored, url)
	}
	assert.Empty(t, pre.key)
}

func TestS3Uploader_PublicBaseURL(t *testing.T) {
	pre := &fakePresigner{}
	u := thumbnail.NewS3Uploader(&fakeS3{}, pre, thumbnail.S3Config{Bucket: "b", PublicBaseURL: "https://cdn.example/"})

	url, err := u.Upload(context.Background(), "u1/r1.png", nil, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/u1/r1.png", url)
	assert.Empty(t, pre.key, "no presign when a public base URL is set")
}

func TestS3Uploader_PutError(t *testing.T) {
	u := thumbnail.NewS3Uploader(&fakeS3{err: errors.New("denied")}, &fakePresigner{}, thumbnail.S3Config{Bucket: "b"})
	_, err := u.Upload(context.Background(), "k", nil, "image/png")
	assert.Error(t, err)
}
