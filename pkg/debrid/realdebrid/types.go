package realdebrid

type AddMagnetSchema struct {
	Id  string `json:"id"`
	Uri string `json:"uri"`
}

type TorrentInfo struct {
	ID               string  `json:"id"`
	Filename         string  `json:"filename"`
	OriginalFilename string  `json:"original_filename"`
	Hash             string  `json:"hash"`
	Bytes            int64   `json:"bytes"`
	OriginalBytes    int64   `json:"original_bytes"`
	Host             string  `json:"host"`
	Split            int     `json:"split"`
	Progress         float64 `json:"progress"`
	Status           string  `json:"status"`
	Added            string  `json:"added"`
	Files            []struct {
		ID       int    `json:"id"`
		Path     string `json:"path"`
		Bytes    int64  `json:"bytes"`
		Selected int    `json:"selected"`
	} `json:"files"`
	Links   []string `json:"links"`
	Ended   string   `json:"ended,omitempty"`
	Speed   int      `json:"speed,omitempty"`
	Seeders int      `json:"seeders,omitempty"`
}

type UnrestrictResponse struct {
	Id         string `json:"id"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	Filesize   int64  `json:"filesize"`
	Link       string `json:"link"`
	Host       string `json:"host"`
	Chunks     int    `json:"chunks"`
	Crc        int    `json:"crc"`
	Download   string `json:"download"`
	Streamable int    `json:"streamable"`
}
