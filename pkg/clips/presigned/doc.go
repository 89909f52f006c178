// Package presigned signs and validates capability URLs for the local blob
// backends (memory and fs), giving them the same client-direct upload and
// playback flow as S3 or MinIO presigned URLs.
//
// A signed URL looks like:
//
//	/blobs/{container}/{objectName}?sp=cw&st=1700000000&se=1700000960&sig=<hex>
//
// sp is the permission (r or cw), st and se bound the validity window in
// unix seconds and sig is HMAC-SHA256 over "sp|container/objectName|st|se".
// A read grant never authorizes a PUT and a write grant never authorizes a GET.
package presigned
