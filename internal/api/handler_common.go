package api

import "net/http"

func parsePaginationOrWriteInvalid(w http.ResponseWriter, r *http.Request) (Pagination, bool) {
	pg, err := ParsePagination(r)
	if err != nil {
		writeInvalidArgument(w, err.Error())
		return Pagination{}, false
	}
	return pg, true
}

func parseBoolQueryOrWriteInvalid(w http.ResponseWriter, r *http.Request, key string) (*bool, bool) {
	v, err := ParseBoolQuery(r, key)
	if err != nil {
		writeInvalidArgument(w, err.Error())
		return nil, false
	}
	return v, true
}

func decodeBodyOrWriteInvalid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := DecodeBody(r, v); err != nil {
		writeDecodeBodyError(w, err)
		return false
	}
	return true
}

// decodeOptionalBodyOrWriteInvalid leaves v untouched when the body is empty.
func decodeOptionalBodyOrWriteInvalid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeOptionalBody(r, v); err != nil {
		writeDecodeBodyError(w, err)
		return false
	}
	return true
}
