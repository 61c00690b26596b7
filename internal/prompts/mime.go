package prompts

const octetStream = "application/octet-stream"

var mimeTypes = map[ParamKind]string{
	ParamPDF:   "application/pdf",
	ParamDOCX:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	ParamXLSX:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	ParamXLS:   "application/vnd.ms-excel",
	ParamCSV:   "text/csv",
	ParamTXT:   "text/plain",
	ParamImage: "image/jpeg",
}

var defaultFilenames = map[ParamKind]string{
	ParamPDF:   "documento.pdf",
	ParamDOCX:  "documento.docx",
	ParamXLSX:  "planilha.xlsx",
	ParamXLS:   "planilha.xls",
	ParamCSV:   "dados.csv",
	ParamTXT:   "arquivo.txt",
	ParamImage: "imagem.jpg",
}

// MIMEType maps a declared file kind to its content type.
func MIMEType(k ParamKind) string {
	if m, ok := mimeTypes[k]; ok {
		return m
	}
	return octetStream
}

func DefaultFilename(k ParamKind) string {
	if n, ok := defaultFilenames[k]; ok {
		return n
	}
	return "arquivo.bin"
}
